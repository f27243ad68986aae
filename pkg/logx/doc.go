// Package logx is a thin structured-logging facade over zerolog.
//
// Components take a logx.Logger by value; the zero value is a safe no-op,
// so wiring stays simple in tests.
package logx
