package mqtt

import "fmt"

// TopicPrefixVideo is the base for all video topics.
// Scheme: graylogic/video/{camera_id}/{kind}
const TopicPrefixVideo = "graylogic/video"

// Topics provides builders for Gray Logic video MQTT topics.
// Using these helpers keeps topic naming consistent between the relay and
// its consumers.
//
//	topics := mqtt.Topics{}
//	frameTopic := topics.VideoFrame("porch")
//	// Returns: "graylogic/video/porch/frame"
type Topics struct{}

// VideoFrame returns the topic carrying binary encoded records.
//
// Example: graylogic/video/porch/frame
func (Topics) VideoFrame(cameraID string) string {
	return fmt.Sprintf("%s/%s/frame", TopicPrefixVideo, cameraID)
}

// VideoSchema returns the retained schema and encoding topic.
//
// Example: graylogic/video/porch/schema
func (Topics) VideoSchema(cameraID string) string {
	return fmt.Sprintf("%s/%s/schema", TopicPrefixVideo, cameraID)
}

// VideoStatus returns the retained status topic. It also carries the
// connection's Last Will.
//
// Example: graylogic/video/porch/status
func (Topics) VideoStatus(cameraID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixVideo, cameraID)
}

// VideoControl returns the topic on which streaming commands arrive.
//
// Example: graylogic/video/porch/control
func (Topics) VideoControl(cameraID string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefixVideo, cameraID)
}

// AllVideoStatus returns a pattern matching every camera's status.
//
// Pattern: graylogic/video/+/status
func (Topics) AllVideoStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixVideo)
}

// AllVideo returns a pattern matching all video traffic.
// Use with caution - this includes every frame.
//
// Pattern: graylogic/video/#
func (Topics) AllVideo() string {
	return TopicPrefixVideo + "/#"
}
