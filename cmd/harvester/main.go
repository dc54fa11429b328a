package main

import (
	"planharvest/cmd/harvester/cmd"
	"planharvest/internal/components/serviceutil"
)

func main() {
	cmd.ExecuteContext(serviceutil.SignalContext())
}
