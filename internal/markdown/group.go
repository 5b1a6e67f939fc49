package markdown

import (
	"path"
	"sort"
	"strings"
)

// GroupPrefix 返回触发对象所属逻辑文档组的枚举前缀
// 取对象名的父路径并带上尾部分隔符；根目录对象返回空前缀，
// 此时接受整桶范围的回退而不是拒绝处理
func GroupPrefix(objectName string) string {
	dir := path.Dir(objectName)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}

// groupSortKey 组内排序键
type groupSortKey struct {
	parent string // 父路径
	index  int    // 文件主干名末尾的数字序号，缺失时为-1
	name   string // 完整对象名，作最终平局判定
}

// OrderGroup 对同组的对象名做稳定全序排序
// 排序键依次为：父路径、文件主干名的末尾数字、完整文件名。
// 没有末尾数字的文件按序号-1处理，确定地排在所有带序号文件之前
func OrderGroup(names []string) []string {
	keys := make([]groupSortKey, 0, len(names))
	for _, name := range names {
		keys = append(keys, groupSortKey{
			parent: path.Dir(name),
			index:  trailingIndex(name),
			name:   name,
		})
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].parent != keys[j].parent {
			return keys[i].parent < keys[j].parent
		}
		if keys[i].index != keys[j].index {
			return keys[i].index < keys[j].index
		}
		return keys[i].name < keys[j].name
	})

	ordered := make([]string, len(keys))
	for i, k := range keys {
		ordered[i] = k.name
	}
	return ordered
}

// trailingIndex 提取文件主干名末尾的十进制序号
// 例如"book-3.json"返回3；无末尾数字时返回-1
func trailingIndex(objectName string) int {
	stem := strings.TrimSuffix(path.Base(objectName), path.Ext(objectName))

	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end {
		return -1
	}

	// 末尾数字串过长时避免溢出，逐位累加并截断在一个很大的安全值
	const maxIndex = 1 << 30
	n := 0
	for _, ch := range stem[start:end] {
		n = n*10 + int(ch-'0')
		if n > maxIndex {
			return maxIndex
		}
	}
	return n
}
