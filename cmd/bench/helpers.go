package main

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fulldump/rowmodel/bootstrap"
	"github.com/fulldump/rowmodel/configuration"
)

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "rowserver_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func DatastoreName() string {
	return "bench-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

// EnsureServer starts a local rowserver unless c.Base points to one.
func EnsureServer(c *Config) {
	if c.Base != "" {
		return
	}

	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	conf := configuration.Default()
	conf.Dir = dir
	c.Base = "http://" + conf.HttpAddr

	start, stop, err := bootstrap.Bootstrap(&conf, c.verbose())
	if err != nil {
		panic("Could not start rowserver: " + err.Error())
	}
	cleanups = append(cleanups, stop)
	go start()
}
