package main

import (
	"context"

	"github.com/bsdkit/zfsinstall/pkg/install"
)

var Run = run

// MockDoInstall replaces the function executing the assembled run and
// returns a restore function.
func MockDoInstall(f func(context.Context, install.Options, install.Deps) error) (restore func()) {
	saved := doInstall
	doInstall = f
	return func() {
		doInstall = saved
	}
}
