// Package holepunch 实现虚拟端口的对等连接器
//
// 每个连接器负责一次连接尝试：
//
//  1. 准备：解析会合服务器地址，建立控制连接。TCP 另外在控制连接的
//     本地端口上以端口复用方式监听，用于接受对端的直连；UDP 使用
//     单个数据报套接字同时完成打洞与接收。
//  2. 认证：HELLO ─► CHALLENGE，挑战经会话转交协调服务器，
//     AUTH_HASH 作为 AUTH_RESPONSE 回送，等待 AUTH_OK。
//  3. 声明能力：P2P_REQUEST 得到对端令牌与公网/私有地址，
//     PROXY_REQUEST 得到中继端口。
//  4. 竞速：在共享期限内并行尝试公网直连、私有地址直连与（TCP）
//     接受入站连接，双方交换令牌确认身份；UDP 以三轮打洞包
//     （0、1、2 秒）代替，双向都确认后成功。
//  5. 回退：期限到达仍未成功则发送 P2P_FAILED，转入代理。
//
// 无论多少条路径同时成功，状态只进入一次 COMPLETED，其余套接字关闭。
// Abort 可在任意状态调用，只释放资源，不报告结果。
package holepunch
