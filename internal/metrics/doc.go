// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
补全后端、批处理与运行历史数据库四个维度。

# 概述

Collector 使用 promauto 注册到默认 Registry，所有指标按 namespace
隔离。Collector 同时实现 llm.CallRecorder 与 pipeline.Recorder，
可直接挂入客户端中间件链和流水线各阶段。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 补全指标：按结果统计调用次数与耗时，以及解码时丢弃的格式错误行数。
  - 批处理指标：按 action/status 统计调度次数与耗时，按 action/outcome 统计行结果。
  - 数据库指标：连接数 Gauge 与查询耗时 Histogram。
*/
package metrics
