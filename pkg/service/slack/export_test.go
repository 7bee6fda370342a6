package slack

// BuildMessageBlocks exposes block rendering for tests.
var BuildMessageBlocks = buildMessageBlocks

// SplitRunes exposes section chunking for tests.
var SplitRunes = splitRunes
