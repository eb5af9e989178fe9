package main

// reliableKinds names the tags that flow through the reliability layer.
// Everything else is fire-and-forget; ReliableAck is unreliable by
// definition even though it's part of the reliability protocol.
var reliableKinds = map[Tag]bool{
	TagJiggyCollected:      true,
	TagNoteCollected:       true,
	TagNoteCollectedPos:    true,
	TagNoteSaveData:        true,
	TagFileProgressFlags:   true,
	TagAbilityProgress:     true,
	TagHoneycombScore:      true,
	TagMumboScore:          true,
	TagHoneycombCollected:  true,
	TagMumboTokenCollected: true,
	TagLevelOpened:         true,
	TagFullSyncRequest:     true,
}

// IsReliable reports whether tag uses the sequence/ack/retransmit protocol.
func IsReliable(tag Tag) bool {
	return reliableKinds[tag]
}

// knownTags names every tag the classifier recognizes; an unrecognized tag is
// logged and dropped by the dispatcher, never fatal.
var knownTags = map[Tag]string{
	TagHandshake:              "Handshake",
	TagPlayerConnected:        "PlayerConnected",
	TagPlayerDisconnected:     "PlayerDisconnected",
	TagPing:                   "Ping",
	TagPong:                   "Pong",
	TagFullSyncRequest:        "FullSyncRequest",
	TagNoteSaveData:           "NoteSaveData",
	TagInitialSaveDataRequest: "InitialSaveDataRequest",
	TagFileProgressFlags:      "FileProgressFlags",
	TagAbilityProgress:        "AbilityProgress",
	TagHoneycombScore:         "HoneycombScore",
	TagMumboScore:             "MumboScore",
	TagHoneycombCollected:     "HoneycombCollected",
	TagMumboTokenCollected:    "MumboTokenCollected",
	TagPuppetUpdate:           "PuppetUpdate",
	TagPuppetSyncRequest:      "PuppetSyncRequest",
	TagJiggyCollected:         "JiggyCollected",
	TagNoteCollected:          "NoteCollected",
	TagNoteCollectedPos:       "NoteCollectedPos",
	TagLevelOpened:            "LevelOpened",
	TagReliableAck:            "ReliableAck",
}

// KindName returns a human-readable name for tag, or "" if unrecognized.
func KindName(tag Tag) string {
	return knownTags[tag]
}
