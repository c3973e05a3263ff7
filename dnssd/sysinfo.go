// Copyright 2024 the arrowhead-f Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dnssd

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
)

// DefaultTxt fills in the attributes every advertised instance
// carries, without overriding what the caller set.
func DefaultTxt(txt map[string]string) {
	if len(txt["arch"]) == 0 {
		txt["arch"] = runtime.GOARCH
	}
	if len(txt["os"]) == 0 {
		txt["os"] = runtime.GOOS
	}
	if len(txt["cores"]) == 0 {
		txt["cores"] = strconv.Itoa(runtime.NumCPU())
	}
}

// UpdateSysInfo refreshes the load and memory attributes consumers
// use to pick among equivalent instances.
func UpdateSysInfo(txt map[string]string) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		v("virtual memory stat failed: %v", err)
	} else {
		txt["mem_avail"] = strconv.FormatUint(vm.Available, 10)
		txt["mem_total"] = strconv.FormatUint(vm.Total, 10)
	}

	avg, err := load.Avg()
	if err != nil {
		v("load stat failed: %v", err)
		return
	}
	txt["load1"] = fmt.Sprintf("%.2f", avg.Load1)
	txt["load5"] = fmt.Sprintf("%.2f", avg.Load5)
	txt["load15"] = fmt.Sprintf("%.2f", avg.Load15)
	txt["load_ratio"] = fmt.Sprintf("%.6f", avg.Load5/float64(runtime.NumCPU()))
}
