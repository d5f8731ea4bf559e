// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 将补全后端的增量事件流解码为完整文本。

# 概述

后端以换行分隔、data: 前缀的事件流返回结果，每个事件载荷是一个
JSON 记录，可能包含 message.content 片段。本包将行切分与前缀过滤
实现为与传输层无关的纯函数，并在其上提供折叠器。

# 核心接口

  - DecodeLine：单行解码，非 data: 行被忽略，JSON 解析失败返回 DecodeWarning。
  - Decoder：按到达顺序累积片段，跨块拼接被截断的行，结束时去除首尾空白。
  - Collect：消费 llm.Stream 直至耗尽并关闭流；传输错误会中止解码。

# 容错

格式错误的行只记录 Warn 日志并丢弃，不会中止解码；空流得到空字符串。
*/
package streaming
