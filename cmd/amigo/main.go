package main

import (
	"github.com/amigocloud/amigocloud-go/internal/cli"
	"github.com/amigocloud/amigocloud-go/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger("info", true)
}

func main() {
	cli.Execute()
}
