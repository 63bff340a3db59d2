// Command deedoxctl runs one-off administration tasks against the Deedox
// database: migrations, seeding, the shared AI credential, the model
// allow-list and site settings.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
