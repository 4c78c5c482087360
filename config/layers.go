package config

import "github.com/yohamta/donburi/ecs"

// Default is the only ECS layer. Hosts are headless and add no renderers.
const Default ecs.LayerID = 0
