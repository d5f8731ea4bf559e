// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 evalflow 的命令行入口。

# 子命令

  - serve    — 启动批处理 API（POST /api/llm、/api/v1/runs）与独立端口的 /metrics
  - run      — 对单个 JSON 行文件执行一次 inference / evaluate / augment，结果写到文件或 stdout
  - version  — 打印构建信息
  - health   — 请求运行中服务的 /health

# 中间件链

Recovery → RequestID → SecurityHeaders → OTelTracing → RequestLogger →
Metrics → RateLimiter（按 IP）→ APIKeyAuth（X-API-Key，探针路径放行）。

# 配置

YAML 文件（--config）叠加 EVALFLOW_* 环境变量。serve 在给出配置文件时
轮询文件变更，log.level 的修改无需重启即可生效。

Version、BuildTime、GitCommit 通过 ldflags 注入：

	go build -ldflags "-X main.Version=1.2.0" ./cmd/evalflow
*/
package main
