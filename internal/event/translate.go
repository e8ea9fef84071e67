package event

import "encoding/json"

// attrs is the decoded eventData of a raw event. A nil attrs behaves like an
// empty object.
type attrs map[string]any

// value returns the first present attribute among names, or nil.
func (a attrs) value(names ...string) any {
	for _, name := range names {
		if v, ok := a[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

// rule extracts one canonical field from the raw attributes.
type rule struct {
	key     string
	extract func(attrs) any
}

func attr(key string, names ...string) rule {
	return rule{key: key, extract: func(a attrs) any { return a.value(names...) }}
}

// nameList flattens a list of records to the identifying name of each entry.
// Entries that are not records are skipped; records without the name yield nil.
func nameList(key, list string, names ...string) rule {
	return rule{key: key, extract: func(a attrs) any {
		items, ok := a[list].([]any)
		if !ok {
			return nil
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			rec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, attrs(rec).value(names...))
		}
		return out
	}}
}

var (
	outputState = []rule{attr("active", "outputActive"), attr("state", "outputState")}
	transition  = []rule{attr("transition", "transitionName")}
	sceneOnly   = []rule{attr("scene", "sceneName")}
)

// rules lists the canonical fields extracted for every known kind. Kinds
// without an entry translate to a record with no fields.
var rules = map[string][]rule{
	KindSceneItemEnableStateChanged: {
		attr("scene", "sceneName"),
		attr("item", "sourceName", "sceneItemId"),
		attr("enabled", "sceneItemEnabled"),
	},
	KindSceneItemVisibilityChanged: {
		attr("scene", "scene-name"),
		attr("item", "item-name", "item-id"),
		attr("enabled", "item-visible"),
	},
	KindSceneItemCreated: {
		attr("scene", "sceneName"),
		attr("item", "sourceName"),
		attr("itemId", "sceneItemId"),
	},
	KindSceneItemRemoved: {
		attr("scene", "sceneName"),
		attr("item", "sourceName"),
		attr("itemId", "sceneItemId"),
	},
	KindSceneListChanged: {
		nameList("scenes", "scenes", "sceneName", "name"),
	},
	KindSceneCreated: {
		attr("scene", "sceneName"),
		attr("isGroup", "isGroup"),
	},
	KindSceneRemoved: {
		attr("scene", "sceneName"),
		attr("isGroup", "isGroup"),
	},
	KindSceneNameChanged: {
		attr("oldName", "oldSceneName"),
		attr("scene", "sceneName"),
	},
	KindCurrentProgramSceneChanged:    sceneOnly,
	KindCurrentPreviewSceneChanged:    sceneOnly,
	KindSwitchScenes:                  {attr("scene", "scene-name")},
	KindSceneTransitionStarted:        transition,
	KindSceneTransitionEnded:          transition,
	KindSceneTransitionVideoEnded:     transition,
	KindCurrentSceneTransitionChanged: transition,
	KindStreamStateChanged:            outputState,
	KindRecordStateChanged: {
		attr("active", "outputActive"),
		attr("state", "outputState"),
		attr("path", "outputPath"),
	},
	KindReplayBufferStateChanged: outputState,
	KindVirtualcamStateChanged:   outputState,
	KindReplayBufferSaved:        {attr("path", "savedReplayPath")},
	KindInputCreated: {
		attr("input", "inputName"),
		attr("kind", "inputKind"),
	},
	KindInputRemoved: {attr("input", "inputName")},
	KindInputNameChanged: {
		attr("oldName", "oldInputName"),
		attr("input", "inputName"),
	},
	KindInputMuteStateChanged: {
		attr("input", "inputName"),
		attr("muted", "inputMuted"),
	},
	KindInputVolumeChanged: {
		attr("input", "inputName"),
		attr("volumeDb", "inputVolumeDb"),
		attr("volumeMul", "inputVolumeMul"),
	},
	KindStudioModeStateChanged: {attr("enabled", "studioModeEnabled")},
	KindExitStarted:            {},
}

// Known reports whether kind has a dedicated extraction.
func Known(kind string) bool {
	_, ok := rules[kind]
	return ok
}

// Translate converts a raw automation event into its canonical record. It
// never fails: unknown kinds yield a record with no fields, missing
// attributes yield nil values, and undecodable data is treated as empty.
func Translate(raw Raw) Canonical {
	out := Canonical{Name: raw.Kind, Fields: Fields{}}

	kindRules, ok := rules[raw.Kind]
	if !ok {
		return out
	}

	var a attrs
	if len(raw.Data) > 0 {
		// A non-object payload leaves a nil; every lookup then yields nil.
		if err := json.Unmarshal(raw.Data, &a); err != nil {
			a = nil
		}
	}

	for _, r := range kindRules {
		out.Fields = append(out.Fields, Field{Key: r.key, Value: r.extract(a)})
	}
	return out
}
