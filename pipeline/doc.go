// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package pipeline 实现数据集的三种批处理操作及其调度器。

# 阶段

  - Inferencer：按行调用补全后端，结果写入 assistant 列
  - Evaluator：通过 Scorer 为每行写入 LLM_Eval 分数
  - Augmenter：为每行生成 factor-1 个变体，仅替换第一个非空列
  - Orchestrator：校验请求并路由到对应阶段，可选记录运行历史

# 并发

所有阶段通过 runIndexed 扇出，errgroup 限制并发数，结果按输入下标
重新组装，因此输出顺序与输入一致。单行失败不会取消其他行：推理与
评估写入错误标记，增强跳过失败的变体。Options.Concurrency 默认为 1，
即逐行顺序处理。CallTimeout 覆盖单次调用及其流读取。

# 用法

	opts := pipeline.Options{Concurrency: 4}
	orch := pipeline.NewOrchestrator(
	    pipeline.NewInferencer(client, opts, logger),
	    pipeline.NewEvaluator(nil, opts, logger),
	    pipeline.NewAugmenter(client, opts, logger),
	    logger,
	)
	out, err := orch.Dispatch(ctx, pipeline.ActionInference, table, pipeline.Params{
	    SystemColumn: "system",
	    UserColumn:   "question",
	})
*/
package pipeline
