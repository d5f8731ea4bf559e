// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 evalflow 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
//
// 调度、各处理阶段以及每次补全调用都通过全局 tracer 记录 span。
package telemetry
