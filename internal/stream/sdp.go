package stream

import (
	"strings"

	"github.com/pion/sdp/v3"
)

const stereoFlag = "stereo=1"

// OfferHasStereo はオファーのいずれかの fmtp に stereo=1 があるかを返す
func OfferHasStereo(offer string) bool {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(offer)); err != nil {
		return strings.Contains(offer, stereoFlag)
	}
	for _, media := range desc.MediaDescriptions {
		for _, attr := range media.Attributes {
			if attr.Key == "fmtp" && strings.Contains(attr.Value, stereoFlag) {
				return true
			}
		}
	}
	return false
}

// PreserveStereo はオファーが stereo=1 を持つとき、アンサーにも付ける
// アンサーが既に持っていれば何も変えない
func PreserveStereo(offer, answer string) string {
	if strings.Contains(answer, stereoFlag) || !OfferHasStereo(offer) {
		return answer
	}
	return strings.Replace(answer, "useinbandfec=1", "useinbandfec=1;"+stereoFlag, 1)
}
