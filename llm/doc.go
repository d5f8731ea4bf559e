// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package llm 定义补全后端的调用契约与客户端装饰器。

# 核心接口

  - Client            — Execute(ctx, CompletionRequest) 返回流式响应句柄
  - Stream            — 有限、不可重启的原始文本块序列，耗尽时返回 io.EOF
  - CompletionRequest — system + user 消息与 SamplingConfig，构造后不可变

# 装饰器

通过 Chain 组合 Middleware，第一个中间件位于最外层：

	client := llm.NewChain(
	    llm.TracingMiddleware(),
	    llm.MetricsMiddleware(collector),
	    llm.CircuitBreakerMiddleware(breaker),
	    llm.RetryMiddleware(retryer),
	    llm.RateLimitMiddleware(limiter),
	).Then(clova.New(cfg, logger))

超时不在此处设置：流水线对每次调用（包括读取流）单独施加超时。

# 子包

  - llm/streaming:        data: 行解码器，将流折叠为完整文本
  - llm/retry:            指数退避重试
  - llm/circuitbreaker:   连续后端失败后熔断，快速失败为 BACKEND_UNAVAILABLE
  - llm/providers/clova:  HTTP 流式补全客户端
*/
package llm
