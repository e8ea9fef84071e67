package event

// OBS event kinds with a known canonical shape. Names are the eventType tags
// sent by obs-websocket; the v4 names are kept for older plugin builds.
const (
	KindSceneItemEnableStateChanged   = "SceneItemEnableStateChanged"
	KindSceneItemVisibilityChanged    = "SceneItemVisibilityChanged"
	KindSceneItemCreated              = "SceneItemCreated"
	KindSceneItemRemoved              = "SceneItemRemoved"
	KindSceneListChanged              = "SceneListChanged"
	KindSceneCreated                  = "SceneCreated"
	KindSceneRemoved                  = "SceneRemoved"
	KindSceneNameChanged              = "SceneNameChanged"
	KindCurrentProgramSceneChanged    = "CurrentProgramSceneChanged"
	KindCurrentPreviewSceneChanged    = "CurrentPreviewSceneChanged"
	KindSwitchScenes                  = "SwitchScenes"
	KindSceneTransitionStarted        = "SceneTransitionStarted"
	KindSceneTransitionEnded          = "SceneTransitionEnded"
	KindSceneTransitionVideoEnded     = "SceneTransitionVideoEnded"
	KindCurrentSceneTransitionChanged = "CurrentSceneTransitionChanged"
	KindStreamStateChanged            = "StreamStateChanged"
	KindRecordStateChanged            = "RecordStateChanged"
	KindReplayBufferStateChanged      = "ReplayBufferStateChanged"
	KindVirtualcamStateChanged        = "VirtualcamStateChanged"
	KindReplayBufferSaved             = "ReplayBufferSaved"
	KindInputCreated                  = "InputCreated"
	KindInputRemoved                  = "InputRemoved"
	KindInputNameChanged              = "InputNameChanged"
	KindInputMuteStateChanged         = "InputMuteStateChanged"
	KindInputVolumeChanged            = "InputVolumeChanged"
	KindStudioModeStateChanged        = "StudioModeStateChanged"
	KindExitStarted                   = "ExitStarted"
)
