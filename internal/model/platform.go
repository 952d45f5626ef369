package model

import (
	"regexp"
	"sort"
	"strings"
)

// Platform 社交平台枚举（封闭集合，所有平台相关规则都从 platformTable 取）
type Platform string

const (
	PlatformTwitter       Platform = "twitter"
	PlatformLinkedIn      Platform = "linkedin"
	PlatformInstagram     Platform = "instagram"
	PlatformFacebook      Platform = "facebook"
	PlatformTikTok        Platform = "tiktok"
	PlatformYouTubeShorts Platform = "youtube_shorts"
	PlatformReddit        Platform = "reddit"
	PlatformThreads       Platform = "threads"
)

// DefaultUnknownPlatformCap 未知平台的每日发帖上限
const DefaultUnknownPlatformCap = 10

// PlatformRule 平台附带数据：每日上限 + 账号 handle 校验规则
type PlatformRule struct {
	Platform      Platform
	DailyCap      int
	HandlePattern *regexp.Regexp
}

var platformTable = map[Platform]PlatformRule{
	PlatformTwitter:       {Platform: PlatformTwitter, DailyCap: 50, HandlePattern: regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)},
	PlatformLinkedIn:      {Platform: PlatformLinkedIn, DailyCap: 20, HandlePattern: regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{1,99}$`)},
	PlatformInstagram:     {Platform: PlatformInstagram, DailyCap: 25, HandlePattern: regexp.MustCompile(`^@?[A-Za-z0-9_.]{1,30}$`)},
	PlatformFacebook:      {Platform: PlatformFacebook, DailyCap: 25, HandlePattern: regexp.MustCompile(`^[A-Za-z0-9.]{1,50}$`)},
	PlatformTikTok:        {Platform: PlatformTikTok, DailyCap: 10, HandlePattern: regexp.MustCompile(`^@?[A-Za-z0-9_.]{2,24}$`)},
	PlatformYouTubeShorts: {Platform: PlatformYouTubeShorts, DailyCap: 5, HandlePattern: regexp.MustCompile(`^@?[A-Za-z0-9_.\-]{3,30}$`)},
	PlatformReddit:        {Platform: PlatformReddit, DailyCap: 10, HandlePattern: regexp.MustCompile(`^(u/)?[A-Za-z0-9_\-]{3,20}$`)},
	PlatformThreads:       {Platform: PlatformThreads, DailyCap: 30, HandlePattern: regexp.MustCompile(`^@?[A-Za-z0-9_.]{1,30}$`)},
}

// ParsePlatform 大小写不敏感解析平台名，未知平台返回 false
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "youtube" || p == "youtube-shorts" {
		p = PlatformYouTubeShorts
	}
	if p == "x" {
		p = PlatformTwitter
	}
	_, ok := platformTable[p]
	return p, ok
}

// Rule 返回平台附带数据；未知平台只带默认上限
func (p Platform) Rule() (PlatformRule, bool) {
	rule, ok := platformTable[p]
	if !ok {
		return PlatformRule{Platform: p, DailyCap: DefaultUnknownPlatformCap}, false
	}
	return rule, true
}

// DailyCap 平台每日上限，未知平台为 DefaultUnknownPlatformCap
func (p Platform) DailyCap() int {
	rule, _ := p.Rule()
	return rule.DailyCap
}

// MatchesHandle 校验账号 handle 是否符合该平台规则；未知平台不做校验
func (p Platform) MatchesHandle(handle string) bool {
	rule, ok := p.Rule()
	if !ok || rule.HandlePattern == nil {
		return true
	}
	return rule.HandlePattern.MatchString(strings.TrimSpace(handle))
}

// KnownPlatforms 按名称排序的全部平台
func KnownPlatforms() []Platform {
	out := make([]Platform, 0, len(platformTable))
	for p := range platformTable {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
