package vulkan

import "sync"

type lockGroup string

// Vulkan requires external synchronization per object family. Each group
// serializes access to one of them.
const (
	queueManagement     lockGroup = "queue_management"
	resourceManagement  lockGroup = "resource_management"
	shaderManagement    lockGroup = "shader_management"
	swapchainManagement lockGroup = "swapchain_management"
)

type lockPool struct {
	mu    sync.Mutex
	locks map[lockGroup]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{
		locks: make(map[lockGroup]*sync.Mutex),
	}
}

func (p *lockPool) get(group lockGroup) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	return l
}

func (p *lockPool) safeCall(group lockGroup, fn func() error) error {
	l := p.get(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
