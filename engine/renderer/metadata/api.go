package metadata

import (
	"fmt"
	"strings"
)

type GraphicsAPI int

const (
	GraphicsAPIVulkan GraphicsAPI = iota
	/** @brief In-process backend without a GPU. Records every call. */
	GraphicsAPIHeadless
)

func (a GraphicsAPI) String() string {
	switch a {
	case GraphicsAPIVulkan:
		return "vulkan"
	case GraphicsAPIHeadless:
		return "headless"
	}
	return fmt.Sprintf("GraphicsAPI(%d)", int(a))
}

func ParseGraphicsAPI(s string) (GraphicsAPI, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vulkan":
		return GraphicsAPIVulkan, nil
	case "headless":
		return GraphicsAPIHeadless, nil
	}
	return GraphicsAPIVulkan, fmt.Errorf("unknown graphics api `%s`", s)
}
