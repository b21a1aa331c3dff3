// Package rendezvous 实现虚拟端口连接请求的会合代理
//
// Broker 按传输类型各有一个实例（TCP / UDP），以连接类型为类型参数：
//
//	应用 Connect ─► REQUEST ─► 服务器
//	                 RZV_DATA ◄─┘
//	         Connector.Start ─► 会合服务器（打洞 / 代理）
//	  CHALLENGE ─► AUTH ─► 服务器 ─► AUTH_HASH ─► Connector
//
// 每个待决请求只会被解决一次：成功、REQUEST_ERROR、超时、目标服务
// 下线与会话断开之间以原子认领竞争，先到者获胜，其余路径只负责
// 中止连接器并释放资源。结果回调在工作池中执行，不持有会话锁。
package rendezvous
