package feast

import (
	"strconv"
	"strings"
)

// NewClient 根据端点创建 gRPC 客户端。
//
// 示例：
//
//	client, err := feast.NewClient("localhost:6565", "crm")
//	client, err := feast.NewClient("grpc://feast:6565", "crm", feast.WithAuth(&feast.AuthConfig{Type: "static", Token: tok}))
func NewClient(endpoint, project string, opts ...ClientOption) (Client, error) {
	host, port := parseEndpoint(endpoint)
	return NewGrpcClient(host, port, project, opts...)
}

// parseEndpoint 解析端点地址，返回 host 和 port（无端口时为 0）
func parseEndpoint(endpoint string) (string, int) {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "grpc://")

	parts := strings.Split(endpoint, ":")
	if len(parts) == 2 {
		port, err := strconv.Atoi(parts[1])
		if err == nil {
			return parts[0], port
		}
	}
	return endpoint, 0
}
