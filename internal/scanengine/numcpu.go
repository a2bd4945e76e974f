package scanengine

import "runtime"

func numCPU() int {
	return runtime.NumCPU()
}
