package main

import (
    "os"
    "time"

    "quoteengine/internal/bootstrap"
)

func main() {
    a := &app{
        out:     os.Stdout,
        errOut:  os.Stderr,
        sources: bootstrap.Sources,
        now:     time.Now,
    }
    if err := a.rootCmd().Execute(); err != nil {
        os.Exit(reportError(os.Stderr, err))
    }
}
