package feast

import (
	"context"
	"time"
)

// Client 是 Feast Feature Store 在线读取的客户端接口。
//
// 只使用在线存储（Online Store）：按实体 ID 读取最新特征值，
// 作为实体解析的记录来源（见 RecordLoader）。
//
// 实现：
//   - GrpcClient 基于官方 SDK (github.com/feast-dev/feast/sdk/go)
//   - 测试中可自行实现此接口
//
// 参考：https://github.com/feast-dev/feast
type Client interface {
	// GetOnlineFeatures 获取在线特征
	//
	// 参数：
	//   - features: 特征名称列表，例如 ["customer:name", "customer:city"]
	//   - entityRows: 实体行，例如 [{"customer_id": "1001"}]
	//
	// 返回：
	//   - 每个实体行对应一个 FeatureVector，顺序与请求一致
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	// Close 关闭客户端连接
	Close() error
}

// GetOnlineFeaturesRequest 获取在线特征请求
type GetOnlineFeaturesRequest struct {
	// Features 特征名称列表，格式 "feature_view:feature"
	Features []string

	// EntityRows 实体行，例如 [{"customer_id": "1001"}, {"customer_id": "1002"}]
	EntityRows []map[string]any

	// Project 项目名称（可选，默认使用客户端的项目）
	Project string
}

// GetOnlineFeaturesResponse 获取在线特征响应
type GetOnlineFeaturesResponse struct {
	FeatureVectors []FeatureVector
}

// FeatureVector 是一个实体行的特征值
type FeatureVector struct {
	// Values 特征值，key 为特征名称；值已转换为记录字段类型（string / float64 / []any），缺失为 nil
	Values map[string]any

	// EntityRow 对应的实体行
	EntityRow map[string]any
}

// ClientOption Feast 客户端配置选项
type ClientOption func(*ClientConfig)

// ClientConfig Feast 客户端配置
type ClientConfig struct {
	Endpoint string
	Project  string
	Timeout  time.Duration
	Auth     *AuthConfig
}

// AuthConfig 认证配置，目前只支持 static（gRPC 静态 Token）
type AuthConfig struct {
	Type  string
	Token string
	TLS   bool
}

// WithTimeout 设置单次请求超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithAuth 设置认证信息
func WithAuth(auth *AuthConfig) ClientOption {
	return func(c *ClientConfig) {
		c.Auth = auth
	}
}
