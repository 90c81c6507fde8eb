//go:build !linux && !darwin && !windows

package routes

import "errors"

var errUnsupported = errors.New("routes: not supported on this platform")

func (m *Manager) addRoute(string) error { return errUnsupported }
func (m *Manager) delRoute(string) error { return errUnsupported }
