package types

// EvtConnectivityChanged 连通状态变化事件
type EvtConnectivityChanged struct {
	// Previous 之前的状态
	Previous ConnectivityState

	// Current 当前状态与错误
	Current Connectivity
}
