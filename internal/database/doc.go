// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的连接打开与连接池管理。

# 核心类型

  - Open / Dialector：按驱动名选择 SQLite（纯 Go 实现）或 PostgreSQL。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping、Stats、
    Close 以及事务辅助方法。
  - PoolConfig：连接数上限、生命周期与健康检查间隔。

# 主要能力

  - 健康检查：后台定时探活，并通过 StatsRecorder 上报连接数。
  - 事务管理：WithTransactionRetry 对死锁、序列化失败、
    SQLite 忙锁等错误按指数退避重试。

运行历史存储（internal/runstore）建立在本包之上。
*/
package database
