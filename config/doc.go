// Package config 提供 evalflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → EVALFLOW_ 环境变量 的顺序叠加，
// 并可通过 Watcher 在配置文件变更时重新加载。
package config
