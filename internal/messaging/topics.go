package messaging

// Topic constants for the vertad messaging system
const (
	// Core consensus workflow topics
	TopicTargets   = "consensus.targets"    // targetd → downstream validators/miners
	TopicRetargets = "consensus.retargets"  // targetd → statsd/alerting (boundary events only)
	TopicChainTips = "consensus.chain_tips" // targetd → anyone following the best tip
)
