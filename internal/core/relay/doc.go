// Package relay 实现代理回退时连接中继端口的客户端一侧
//
// 中继握手：向服务器给出的中继端口发送 13 字节代理头
// （"VPRX"、角色 1、8 字节大端连接 ID），收到完全相同的回显即成功。
// TCP 在流上收发一次；UDP 以数据报发送，未收到回显时周期重发。
package relay
