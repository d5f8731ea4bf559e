// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package clova 实现 CLOVA Studio 风格的流式聊天补全客户端。

请求以 JSON 形式 POST 到 {BaseURL}{EndpointPath}，消息列表与采样参数
平铺在同一对象中。每次请求生成新的 X-NCP-CLOVASTUDIO-REQUEST-ID。
响应体按原始块返回，由 llm/streaming 负责解码。

错误映射：

  - 传输失败  → BACKEND_UNAVAILABLE（可重试）
  - 429       → RATE_LIMITED（可重试）
  - 5xx       → UPSTREAM_ERROR（可重试）
  - 401/403   → UNAUTHORIZED

用法：

	client := clova.New(clova.Config{
	    BaseURL:       "https://clovastudio.stream.ntruss.com",
	    APIKey:        cfg.Backend.APIKey,
	    GatewayAPIKey: cfg.Backend.GatewayAPIKey,
	}, logger)
*/
package clova
