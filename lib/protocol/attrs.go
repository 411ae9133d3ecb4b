package protocol

// Island root attributes, written by the server on the root element of every
// rendered component.
const (
	AttrIsland      = "island"
	AttrIslandName  = "island-name"
	AttrIslandRoute = "island-route"
	AttrSnapshot    = "snapshot"
	AttrShared      = "island-shared"
	AttrListen      = "island-listen"
)

// ListenSeparator joins an event and its action in island-listen entries:
// island-listen="todo:added=reload cart:changed=refresh".
const ListenSeparator = "="

// Directive attributes, written by component templates.
const (
	AttrAction       = "action-trigger"
	AttrActionTarget = "action-target"
	AttrModel        = "model"
	AttrParamPrefix  = "param-"
	AttrTarget       = "target"
	AttrPoll         = "poll"
	AttrPollAction   = "poll-action"
	AttrLoading      = "loading"
)
