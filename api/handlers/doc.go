// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 evalflow HTTP API 的请求处理器。

# 核心类型

  - LLMHandler     — POST /api/llm，解析行数组并交给 Dispatcher
  - RunsHandler    — 运行历史查询
  - HealthHandler  — /health、/healthz、/ready、/version
  - HealthCheck    — 可插拔就绪检查（后端配置、数据库探活）
  - ResponseWriter — 包装 http.ResponseWriter 以捕获状态码

# 错误映射

所有错误体为 {"error": "...", "code": "..."}。校验类错误码
（EMPTY_INPUT、MISSING_PARAMETER、UNSUPPORTED_ACTION、INVALID_REQUEST）
返回 400，处理失败返回 500。单行后端失败不影响状态码，
只体现在该行的错误标记中。
*/
package handlers
