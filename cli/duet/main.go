package main

import (
	"os"

	duetcmder "github.com/koscakluka/ema-duet/cmd/duet"
)

func main() {
	cmd := duetcmder.NewDuetCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
