// Package store 提供 core.Store / core.HashStore 的实现，以及在其上保存数据集与标注的 DatasetStore。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var kv core.HashStore = store.NewMemoryStore()
//	ds := store.NewDatasetStore(kv, "dedupekit")
//	_ = ds.Save(ctx, "canonical", data)
package store
