package testutil

import (
	"math/rand"
	"sync"
	"time"
)

var (
	portManagerInstance *portManager
	once                sync.Once
)

type portManager struct {
	usedPorts map[int]bool
	mu        sync.Mutex
	minPort   int
	maxPort   int
	rng       *rand.Rand
}

func getPortManager() *portManager {
	once.Do(func() {
		portManagerInstance = &portManager{
			usedPorts: make(map[int]bool),
			minPort:   15000,
			maxPort:   25000,
			rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		}
	})
	return portManagerInstance
}

// reservePort picks a host port not yet handed out in this test process.
func reservePort() int {
	pm := getPortManager()
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for {
		port := pm.minPort + pm.rng.Intn(pm.maxPort-pm.minPort+1)
		if !pm.usedPorts[port] {
			pm.usedPorts[port] = true
			return port
		}
	}
}
