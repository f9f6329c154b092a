package ntpsync

func RemoveIndex[T any](s *[]T, index int) {
	ret := make([]T, 0, len(*s)-1)
	ret = append(ret, (*s)[:index]...)
	ret = append(ret, (*s)[index+1:]...)
	*s = ret
}
