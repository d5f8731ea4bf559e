// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 EvalFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、pipeline、api
等上层模块提供统一的数据与错误契约。

# 核心类型

  - Row / Dataset — 扁平的列名到字符串值映射，以及有序的行序列
  - Table         — Dataset 与有序表头的组合，承载列顺序
  - Error         — 结构化错误（Code、HTTPStatus、Retryable、Cause）

# 主要能力

  - DecodeRows：按首次出现顺序解析 JSON 行数组并记录列顺序
  - 错误哨兵：ErrEmptyInput / ErrMissingParameter / ErrUnsupportedAction 等，
    可配合 errors.Is 按错误码匹配
*/
package types
