package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"nrrp.app/referrals/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
