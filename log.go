package main

import "log"

// logger is a minimal prefix-per-component wrapper around the standard
// library logger. The donor codebase calls log.Printf directly at every call
// site; this keeps that style but tags each line with the owning component so
// output from the reactor, the readers/writers, and the DNS resolver can be
// told apart without a structured logging dependency (none appears anywhere
// in the reference pack; see DESIGN.md).
type logger struct {
	component string
}

func newLogger(component string) logger {
	return logger{component: component}
}

func (l logger) Printf(format string, args ...interface{}) {
	log.Printf("%s: "+format, append([]interface{}{l.component}, args...)...)
}

func (l logger) Println(args ...interface{}) {
	log.Println(append([]interface{}{l.component + ":"}, args...)...)
}
