package main

//go:generate swag init -g cmd/executor/main.go -o docs

// @title           Hypercopy Executor API
// @version         0.1.0
// @description     Order intake, execution lifecycle and stop-loss controls for copy trading.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
