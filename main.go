package main

import (
	"fmt"

	"github.com/wangfenghuan/draw-backend/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
