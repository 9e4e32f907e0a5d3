// Package catalog holds the static tables fed into the overwrite engine:
// regions, service groups, rule providers, the rule list and global settings.
// Tables are built once and must be treated as read-only.
package catalog

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/fabian4/overwrite-homebrew-go/internal/model"
)

const (
	orz3     = "https://gcore.jsdelivr.net/gh/Orz-3/mini@master/Color"
	zakii    = "https://raw.githubusercontent.com/cnzakii/rule_script/main/icon"
	rulesURL = "https://raw.githubusercontent.com/blackmatrix7/ios_rule_script/master/rule/Clash"
)

// Reserved group names.
const (
	TopLevel    = "代理选择"
	Manual      = "手动选择"
	OtherRegion = "其他地区"
)

// Catalog bundles every static table used by one engine.
type Catalog struct {
	Regions   []model.Region
	Services  []model.ServiceGroup
	Providers []model.RuleProvider
	Rules     []string
	Settings  model.Settings

	TopLevelIcon    string
	ManualIcon      string
	OtherRegionIcon string
}

// Default returns a fresh copy of the built-in tables.
func Default() *Catalog {
	return &Catalog{
		Regions:         regions(),
		Services:        services(),
		Providers:       providers(),
		Rules:           append([]string(nil), rules...),
		Settings:        settings,
		TopLevelIcon:    orz3 + "/Roundrobin.png",
		ManualIcon:      orz3 + "/Static.png",
		OtherRegionIcon: orz3 + "/UN.png",
	}
}

var settings = model.Settings{
	Port:               7890,
	SocksPort:          7891,
	AllowLan:           true,
	Mode:               "rule",
	LogLevel:           "info",
	ExternalController: "127.0.0.1:9090",
}

func regions() []model.Region {
	return []model.Region{
		{Name: "香港", Pattern: "香港|港|HK|Hong Kong|HongKong|🇭🇰", Icon: orz3 + "/HK.png"},
		{Name: "台湾", Pattern: "台|新北|彰化|TW|Taiwan|🇹🇼|🇨🇳", Icon: orz3 + "/CN.png"},
		{Name: "新加坡", Pattern: "新加坡|坡|狮城|SG|Singapore|🇸🇬", Icon: orz3 + "/SG.png"},
		{Name: "日本", Pattern: "日本|川日|东京|大阪|泉日|埼玉|沪日|深日|JP|Japan|🇯🇵", Icon: orz3 + "/JP.png"},
		{Name: "韩国", Pattern: "KR|Korea|KOR|首尔|韩|韓|🇰🇷", Icon: orz3 + "/KR.png"},
		{Name: "美国", Pattern: "美国|美|US|United States|🇺🇸", Icon: orz3 + "/US.png"},
		{Name: "加拿大", Pattern: "加拿大|Canada|CA|🇨🇦", Icon: orz3 + "/CA.png"},
		{Name: "英国", Pattern: "英国|United Kingdom|UK|伦敦|London|🇬🇧", Icon: orz3 + "/UK.png"},
		{Name: "法国", Pattern: "法国|法|FR|France|🇫🇷", Icon: orz3 + "/FR.png"},
		{Name: "德国", Pattern: "德国|德|DE|Germany|🇩🇪", Icon: orz3 + "/DE.png"},
		{Name: "荷兰", Pattern: "荷兰|NL|Netherlands|🇳🇱", Icon: orz3 + "/NL.png"},
		{Name: "澳大利亚", Pattern: "澳洲|澳大利亚|AU|Australia|🇦🇺", Icon: orz3 + "/AU.png"},
		{Name: "俄罗斯", Pattern: "俄罗斯|俄|RU|Russia|🇷🇺", Icon: orz3 + "/RU.png"},
		{Name: "土耳其", Pattern: "土耳其|TR|Turkey|Türkiye|🇹🇷", Icon: orz3 + "/TR.png"},
	}
}

func services() []model.ServiceGroup {
	return []model.ServiceGroup{
		{Name: "OpenAI", Icon: zakii + "/openai.png", Order: model.ProxyFirst},
		{Name: "Anthropic", Icon: zakii + "/claude.png", Order: model.ProxyFirst},
		{Name: "AI", Icon: orz3 + "/OpenAI.png", Order: model.ProxyFirst},
		{Name: "Telegram", Icon: orz3 + "/Telegram.png", Order: model.ProxyFirst},
		{Name: "YouTube", Icon: orz3 + "/YouTube.png", Order: model.ProxyFirst},
		{Name: "Google", Icon: orz3 + "/Google.png", Order: model.ProxyFirst},
		{Name: "Microsoft", Icon: orz3 + "/Microsoft.png", Order: model.ProxyFirst},
		{Name: "Netflix", Icon: orz3 + "/Netflix.png", Order: model.ProxyFirst},
		{Name: "Spotify", Icon: orz3 + "/Spotify.png", Order: model.ProxyFirst},
		{Name: "TikTok", Icon: orz3 + "/TikTok.png", Order: model.ProxyFirst},
		{Name: "Steam", Icon: orz3 + "/Steam.png", Order: model.ProxyFirst},
		{Name: "Game", Icon: orz3 + "/GAME.png", Order: model.ProxyFirst},
		{Name: "GlobalMedia", Icon: orz3 + "/Streaming.png", Order: model.ProxyFirst},
		{Name: "Speedtest", Icon: orz3 + "/Speedtest.png", Order: model.ProxyFirst},
		{Name: "Apple", Icon: orz3 + "/Apple.png", Order: model.DirectFirst},
		{Name: "广告拦截", Icon: orz3 + "/Adblock.png", Order: model.Block},
		{Name: "国内网站", Icon: orz3 + "/China.png", Order: model.DirectFirst},
		{Name: "Final", Icon: orz3 + "/Final.png", Order: model.ProxyFirst},
	}
}

// providers are listed in output order; the file name doubles as the rule-set name.
func providers() []model.RuleProvider {
	list := []struct{ name, file string }{
		{"Advertising", "AdvertisingLite/AdvertisingLite_Classical_No_Resolve.yaml"},
		{"OpenAI", "OpenAI/OpenAI_No_Resolve.yaml"},
		{"Claude", "Claude/Claude_No_Resolve.yaml"},
		{"Telegram", "Telegram/Telegram_No_Resolve.yaml"},
		{"YouTube", "YouTube/YouTube_No_Resolve.yaml"},
		{"Google", "Google/Google_No_Resolve.yaml"},
		{"Microsoft", "Microsoft/Microsoft_No_Resolve.yaml"},
		{"Netflix", "Netflix/Netflix_Classical_No_Resolve.yaml"},
		{"Spotify", "Spotify/Spotify_No_Resolve.yaml"},
		{"TikTok", "TikTok/TikTok_No_Resolve.yaml"},
		{"Steam", "Steam/Steam_No_Resolve.yaml"},
		{"Game", "Game/Game_No_Resolve.yaml"},
		{"GlobalMedia", "GlobalMedia/GlobalMedia_Classical_No_Resolve.yaml"},
		{"Speedtest", "Speedtest/Speedtest_No_Resolve.yaml"},
		{"Apple", "Apple/Apple_Classical_No_Resolve.yaml"},
	}
	return lo.Map(list, func(e struct{ name, file string }, _ int) model.RuleProvider {
		return model.RuleProvider{
			Name:     e.name,
			Type:     "http",
			Behavior: "classical",
			Format:   "yaml",
			Interval: 86400,
			URL:      rulesURL + "/" + e.file,
			Path:     "./ruleset/" + e.name + ".yaml",
		}
	})
}

// rules are matched top to bottom by the client.
var rules = []string{
	"RULE-SET,Advertising,广告拦截",
	// more specific AI services before the generic category
	"RULE-SET,OpenAI,OpenAI",
	"RULE-SET,Claude,Anthropic",
	"GEOSITE,category-ai-!cn,AI",
	"RULE-SET,Telegram,Telegram",
	"RULE-SET,Speedtest,Speedtest",
	"RULE-SET,Steam,Steam",
	"RULE-SET,Game,Game",
	"RULE-SET,YouTube,YouTube",
	"RULE-SET,Netflix,Netflix",
	"RULE-SET,Spotify,Spotify",
	"RULE-SET,TikTok,TikTok",
	"RULE-SET,GlobalMedia,GlobalMedia",
	"RULE-SET,Google,Google",
	"RULE-SET,Microsoft,Microsoft",
	"RULE-SET,Apple,Apple",
	"GEOSITE,cn,国内网站",
	"GEOIP,cn,国内网站,no-resolve",
	"MATCH,Final",
}

// Validate checks the static tables for duplicate names and for service
// groups that would collide with the reserved or region group names.
func (c *Catalog) Validate() error {
	seen := map[string]string{
		TopLevel:    "reserved",
		Manual:      "reserved",
		OtherRegion: "reserved",
	}
	for i, r := range c.Regions {
		if r.Name == "" {
			return fmt.Errorf("regions[%d]: name is required", i)
		}
		if r.Pattern == "" {
			return fmt.Errorf("regions[%d]: pattern is required", i)
		}
		if prev, dup := seen[r.Name]; dup {
			return fmt.Errorf("regions[%d]: name %q already used (%s)", i, r.Name, prev)
		}
		seen[r.Name] = "region"
	}
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if prev, dup := seen[s.Name]; dup {
			return fmt.Errorf("services[%d]: name %q already used (%s)", i, s.Name, prev)
		}
		seen[s.Name] = "service"
	}
	if dups := lo.FindDuplicates(lo.Map(c.Providers, func(p model.RuleProvider, _ int) string { return p.Name })); len(dups) > 0 {
		return fmt.Errorf("rule providers: duplicate name %q", dups[0])
	}
	return nil
}
