// Package scriptfilter classifies Han script variants and cleans keyword lists.
package scriptfilter

import (
	"strings"
	"unicode"
)

type Script int

const (
	None Script = iota
	Traditional
	Simplified
	Mixed
)

func (s Script) String() string {
	switch s {
	case Traditional:
		return "traditional"
	case Simplified:
		return "simplified"
	case Mixed:
		return "mixed"
	default:
		return "none"
	}
}

// Each entry is a simplified form followed by its traditional form.
var variantPairs = []string{
	"电電", "脑腦", "汤湯", "谱譜", "书書", "车車", "马馬", "门門", "问問", "间間",
	"说說", "话話", "语語", "认認", "识識", "读讀", "写寫", "学學", "习習", "这這",
	"个個", "们們", "来來", "时時", "会會", "国國", "为為", "对對", "发發", "经經",
	"现現", "动動", "进進", "还還", "过過", "点點", "关關", "机機", "东東", "长長",
	"开開", "样樣", "实實", "体體", "头頭", "见見", "应應", "当當", "从從", "业業",
	"华華", "两兩", "热熱", "买買", "卖賣", "价價", "钱錢", "银銀", "运運", "饭飯",
	"鱼魚", "鸡雞", "烧燒", "炖燉", "虾蝦", "猪豬", "饺餃", "馆館", "厅廳", "减減",
	"药藥", "医醫", "疗療", "护護", "肤膚", "网網", "络絡", "页頁", "视視", "频頻",
	"图圖", "戏戲", "软軟", "设設", "计計", "订訂", "单單", "购購", "优優", "质質",
	"评評", "论論", "荐薦", "装裝", "饰飾", "户戶", "线線", "级級", "费費", "贵貴",
	"检檢", "测測", "验驗", "营營", "养養", "灯燈", "厨廚", "鲜鮮", "汇匯", "区區",
	"县縣", "岛島", "湾灣", "场場", "报報", "纸紙", "笔筆", "记記",
	"乐樂", "欢歡", "节節", "礼禮", "亲親", "爱愛", "儿兒", "妈媽", "闻聞",
	"饮飲", "酱醬", "盐鹽", "鸭鴨", "汉漢", "简簡", "码碼",
}

var (
	simplifiedOnly  = map[rune]struct{}{}
	traditionalOnly = map[rune]struct{}{}
)

func init() {
	for _, pair := range variantPairs {
		runes := []rune(pair)
		if len(runes) != 2 || runes[0] == runes[1] {
			continue
		}
		simplifiedOnly[runes[0]] = struct{}{}
		traditionalOnly[runes[1]] = struct{}{}
	}
}

// Classify reports which Han variant text is written in. Han characters that
// are shared between variants count as traditional.
func Classify(text string) Script {
	var hasHan, hasSimplified, hasTraditional bool
	for _, r := range text {
		if !unicode.Is(unicode.Han, r) {
			continue
		}
		hasHan = true
		if _, ok := simplifiedOnly[r]; ok {
			hasSimplified = true
		}
		if _, ok := traditionalOnly[r]; ok {
			hasTraditional = true
		}
	}

	switch {
	case !hasHan:
		return None
	case hasSimplified && hasTraditional:
		return Mixed
	case hasSimplified:
		return Simplified
	default:
		return Traditional
	}
}

// FilterSimplified drops entries written purely in simplified script, keeping order.
func FilterSimplified(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if Classify(item) == Simplified {
			continue
		}
		out = append(out, item)
	}
	return out
}

// DedupeCaseInsensitive keeps the first occurrence of each case-folded entry.
// Blank entries are dropped.
func DedupeCaseInsensitive(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, item := range list {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
