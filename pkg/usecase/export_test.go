package usecase

// BuildActionMessageBlocks is exported for testing
var BuildActionMessageBlocks = buildActionMessageBlocks

// TruncateToMaxBytes is exported for testing UTF-8 truncation
var TruncateToMaxBytes = truncateToMaxBytes
