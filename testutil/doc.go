// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 evalflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 数据集辅助: Row / NewTable / CloneTable，简化表格测试数据构造
  - 断言工具: AssertRowsEqual / AssertTableEqual（基于 go-cmp 输出差异）/
    AssertJSONEqual / AssertContains / AssertEventuallyTrue
  - 流辅助: DrainStream 读取 llm.Stream 的全部原始块

# 子包

  - testutil/mocks: MockClient（补全后端），支持 Builder 模式、
    按请求动态应答、延迟与错误注入

# 使用示例

	ctx := testutil.TestContext(t)
	client := mocks.NewMockClient().WithResponse("hello")
	stream, err := client.Execute(ctx, req)
	require.NoError(t, err)
*/
package testutil
