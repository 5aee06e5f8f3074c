package main

import (
	"os"

	"livehost-go/cmd"
)

func main() {
	// エラーは cobra が表示済みなので終了コードだけ返す
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
