// Package mock is used to generate mock files for testing.
package mock

//go:generate mockgen -source ../session_iface.go -destination mock_authcore/mock_session_iface.go
//go:generate mockgen -source ../credstore/credstore.go -destination mock_credstore/mock_credstore.go
