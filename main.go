package main

import (
	"github.com/Jakkraphat/identity_service/config"
	"github.com/Jakkraphat/identity_service/internal/api"
)

func main() {
	cfg := config.LoadConfig()
	api.StartServer(cfg)
}
